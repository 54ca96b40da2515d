package postgres

import (
	"encoding/json"

	"github.com/transitline/ticketing-core/internal/events"
)

func marshalEnvelope(env *events.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
