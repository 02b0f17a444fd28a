// Package events connects the control layer to MQTT and InfluxDB.
//
// Publisher implements the notifier interfaces of the executor, the
// discovery engine and the status reader, publishing JSON events. Bridge
// accepts remote command requests on avrctl/command/{model}/{action} and
// acknowledges each with its outcome. StatusWatcher follows the retained
// avrctl/status/{host} topics published by a running daemon. Recorder implements the executor and
// status recorders on top of InfluxDB.
//
// Publication failures are logged and never fail the operation that
// produced the event.
package events
