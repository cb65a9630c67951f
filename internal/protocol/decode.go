package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMalformedEnvelope indicates a frame that is not a {"event","data"} object.
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	// ErrUnknownEvent indicates an event name outside the accepted set.
	ErrUnknownEvent = errors.New("protocol: unknown event")
	// ErrInvalidPayload indicates a payload that failed decoding or validation.
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)

// Envelope is the wire frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decoder turns frames into validated messages.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder constructs a Decoder. Validation errors name fields by their
// json key so they can be shown to clients.
func NewDecoder() *Decoder {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: validate}
}

// Decode parses a frame and validates its payload against the event's variant.
// The event name is returned even when decoding fails past the envelope.
func (d *Decoder) Decode(frame []byte) (string, Message, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return "", nil, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	factory, ok := inboundFactories[event]
	if !ok {
		return event, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	message := factory()
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return event, nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(envelope.Data, message); err != nil {
		return event, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := d.validate.Struct(message); err != nil {
		return event, nil, fmt.Errorf("%w: %s", ErrInvalidPayload, describeValidation(err))
	}
	if extra, ok := message.(checker); ok {
		if err := extra.check(); err != nil {
			return event, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return event, message, nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s failed %s", fieldError.Field(), fieldError.Tag()))
	}
	return strings.Join(parts, "; ")
}
