// Package mqtt publishes trunk-recorder status envelopes to an MQTT
// broker.
//
// A [Manager] owns the broker session. Its state moves through
// Closed, Opening, Open and Lost; every transition is a compare-and-swap
// on one atomic cell, so notifications arriving late from transport
// goroutines cannot reopen a session that was closed. The session itself
// is driven by a [Transport]: [V311Transport] speaks MQTT 3.1.1 through
// Eclipse Paho's classic client and [V5Transport] speaks MQTT 5 through
// Paho v2's [autopaho] package. Both reconnect on their own using the
// bounded backoff from the connwatch package; the manager only records
// what they report.
//
// A [Publisher] wraps a document in the status envelope
//
//	{"<field>": <document>, "type": "<messageType>", "timestamp": <unix>}
//
// and publishes it at QoS 1 on the base topic joined with the message
// type (see [ResolveTopic]). Messages produced while the session is not
// Open are dropped. There is no outbound queue.
//
// The broker keeps a last-will message on topic "final" for every
// session, so consumers learn about an unexpected disconnect.
package mqtt
