package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any stdin data sent over the WebSocket the PTY must receive the
// same bytes, and for any stdout data the clients must receive the same
// bytes. The JSON envelope must therefore round-trip arbitrary strings,
// ANSI escapes included.
func TestMessageRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	roundTrip := func(msgType MessageType) func(string) bool {
		return func(data string) bool {
			raw, err := json.Marshal(Message{Type: msgType, Data: data})
			if err != nil {
				return false
			}
			var parsed Message
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return false
			}
			return parsed.Type == msgType && parsed.Data == data
		}
	}

	properties.Property("stdin messages preserve data", prop.ForAll(
		roundTrip(MessageTypeStdin), gen.AnyString()))
	properties.Property("stdout messages preserve data", prop.ForAll(
		roundTrip(MessageTypeStdout), gen.AnyString()))

	properties.Property("resize messages preserve dimensions", prop.ForAll(
		func(rows, cols uint16) bool {
			raw, err := json.Marshal(Message{Type: MessageTypeResize, Rows: rows, Cols: cols})
			if err != nil {
				return false
			}
			var parsed Message
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return false
			}
			return parsed.Rows == rows && parsed.Cols == cols
		},
		gen.UInt16(), gen.UInt16(),
	))

	properties.TestingRun(t)
}

// Every registered client must receive every broadcast.
func TestHubBroadcastProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("broadcast reaches all clients", prop.ForAll(
		func(numClients int, data string) bool {
			hub := NewHub("prop-session")
			defer hub.Close()

			var wg sync.WaitGroup
			received := make([]string, numClients)
			clients := make([]*Client, numClients)

			for n := 0; n < numClients; n++ {
				client := NewClient(hub, nil, "prop-session")
				clients[n] = client
				hub.Register(client)

				idx := n
				wg.Add(1)
				go func() {
					defer wg.Done()
					select {
					case msg := <-client.SendChan():
						received[idx] = string(msg)
					case <-time.After(200 * time.Millisecond):
					}
				}()
			}

			hub.Broadcast([]byte(data))
			wg.Wait()

			for n := 0; n < numClients; n++ {
				if received[n] != data {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
