// Package output renders upload runs and the upload history.
//
// New picks a formatter by name: "console" prints colored lines as each run
// finishes, while "json" and "junit" collect runs and write one document
// when flushed. The console and JSON formatters also implement
// HistoryFormatter for the history command.
package output
