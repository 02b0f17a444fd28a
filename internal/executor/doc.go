// Package executor turns a (model, action, host, parameters) invocation
// into one HTTP request against a receiver.
//
// The pipeline is: look up the model, look up the command, check the HTTP
// method, resolve the template, assemble the URL and dispatch once. HTTP
// 200 is the only success. There are no retries.
//
// Execute reports a bare success flag and logs the reason for a failure.
// Run returns the same reason as an error for callers that need it, such
// as the CLI and the MQTT command bridge.
package executor
