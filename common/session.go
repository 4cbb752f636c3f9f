package common

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SessionRequest asks for a new session. A nil Seed lets the server pick one.
type SessionRequest struct {
	Seed    *uint64 `json:"seed,omitempty" mapstructure:"seed"`
	Variant string  `json:"variant" mapstructure:"variant"`
}

func ParseSessionRequest(body []byte) (req SessionRequest, err error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return
	}

	raw := map[string]interface{}{}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	if err = decoder.Decode(&raw); err != nil {
		err = fmt.Errorf("bad session request: %s", err)
		return
	}

	if err = decodeWeakly(raw, &req); err != nil {
		err = fmt.Errorf("bad session request: %s", err)
	}

	return
}
