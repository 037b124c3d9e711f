package serde

// Serde pairs a Serialiser and Deserialiser for one type. Implementations are
// the key/value schema handles of a topic: the runtime never looks inside the
// bytes they produce.
type Serde[T any] interface {
	Serialiser[T]
	Deserialiser[T]
}

type Serialiser[T any] interface {
	Serialise(topic string, value T) ([]byte, error)
}

type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}
