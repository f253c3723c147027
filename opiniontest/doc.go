// Package opiniontest provides test doubles for code that dispatches to
// opinion providers.
//
// Provider is a scripted provider.Provider: it answers with a fixed reply,
// a fixed error, or a custom function, optionally after a delay, and records
// every invocation so tests can assert on what was sent and how often.
//
//	fast := opiniontest.New("openai", opiniontest.WithReply("Yes."))
//	slow := opiniontest.New("ollama", opiniontest.WithDelay(time.Second))
//	off := opiniontest.New("claude", opiniontest.NotReady())
package opiniontest
