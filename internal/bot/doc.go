// Package bot turns chat messages into responder replies. Addressed
// messages are parsed as admin commands; everything else is run through
// the trigger matcher and the matched template is rendered for the sender.
package bot
