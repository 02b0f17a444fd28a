// Package influxdb stores receiver telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	receiver_status   one point per successful status read, tagged by host
//	                  (fields: power_on, volume_db, mute, input, sound_mode)
//	receiver_command  one point per dispatched command, tagged by model,
//	                  action and host (fields: success, status_code,
//	                  duration_ms)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReceiverStatus(influxdb.ReceiverSample{Host: "192.168.1.50", ...})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write errors go to the SetOnError callback.
package influxdb
