// Command scriptedit edits a task's video script from the terminal.
//
// Every invocation opens the script, replays the local draft, applies one
// action and closes again, so edits made by "scriptedit edit" survive
// until "scriptedit save" submits them or "scriptedit discard" drops them.
// "scriptedit session" keeps one script open for an interactive session.
package main
