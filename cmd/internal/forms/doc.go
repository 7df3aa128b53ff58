// Package forms validates user input before any network call.
//
// Every failure is a *ValidationError whose Error() is the message shown to
// the user as-is.
package forms
