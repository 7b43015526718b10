package link

import "rubberweigh/internal/mqtt"

// MQTTRadio publishes frames to a station's records topic at QoS 1. The
// broker's PUBACK plays the part of the radio's send-complete callback.
type MQTTRadio struct {
	client *mqtt.Client
	topic  string
}

func NewMQTTRadio(client *mqtt.Client, prefix, stationID string) *MQTTRadio {
	return &MQTTRadio{client: client, topic: mqtt.RecordsTopic(prefix, stationID)}
}

func (r *MQTTRadio) Send(frame []byte, onSent func(ok bool)) error {
	return r.client.PublishAsync(r.topic, 1, false, frame, func(err error) {
		onSent(err == nil)
	})
}
