// Package provider defines the opinion provider contract and its backends:
// an HTTP API client (OpenAI), a local daemon client (Ollama) and two CLI
// subprocess clients (Gemini, Claude). Every call is bounded by the
// provider's own timeout and failures are reported as *Error values with a
// Kind.
package provider
