// Package evaluation scores one item against the external LLM services.
//
// The Gateway sequences three calls (answer generation, answer similarity and
// citation similarity) and wraps each one in a bounded retry policy with a
// per-call timeout. ServiceClient is the boundary to the external services;
// internal/platform/gemini provides the production implementation.
package evaluation
