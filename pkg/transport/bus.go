// Package transport implements the MQTT-mediated bus the query/response
// protocol rides on: a Bus abstraction with a real eclipse/paho.mqtt.golang
// implementation for production and an in-memory implementation for
// tests, plus the topic taxonomy from spec §6 and the mTLS material
// carried over from the teacher's relay package.
package transport

import "fmt"

// Bus is the transport abstraction the controller and agent depend on;
// it hides whether messages travel over a real MQTT broker or an
// in-process fake.
type Bus interface {
	// Publish sends payload on topic at the given QoS, retained or not.
	Publish(topic string, qos byte, retained bool, payload []byte) error
	// Subscribe registers handler for messages arriving on topic
	// (which may contain MQTT wildcards). Only one handler may be
	// registered per exact topic string at a time.
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	// Unsubscribe removes a previously registered subscription.
	Unsubscribe(topic string) error
	// Disconnect closes the connection, waiting up to quiesce
	// milliseconds for in-flight publishes to flush.
	Disconnect(quiesceMillis uint)
}

// Topic taxonomy (spec §6).
const (
	TopicQuery        = "MOI/query"
	TopicResultQuery   = "MOI/result/query"
	TopicResultFile    = "MOI/result/file"
	TopicResultProcess = "MOI/result/process"
	TopicResultGroup   = "MOI/result/group"
	TopicAlive         = "MOI/alive"
	TopicQuit          = "MOI/quit"
)

// TopicQueryFor builds the narrowcast query topic for a single address.
func TopicQueryFor(addr string) string {
	return fmt.Sprintf("MOI/query/%s", addr)
}

// TopicFile builds the retained push-file topic for a given sequence.
func TopicFile(seq int) string {
	return fmt.Sprintf("MOI/file/%d", seq)
}

// TopicFetch builds the pull-file topic an agent publishes raw bytes on.
func TopicFetch(seq int, addr, name string) string {
	return fmt.Sprintf("MOI/fetch/%d/%s/%s", seq, addr, name)
}
