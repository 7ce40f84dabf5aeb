package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a streaming channel is no longer
// needed (e.g. the Partials channel of a closed STT session).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
