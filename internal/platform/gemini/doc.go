// Package gemini implements evaluation.ServiceClient on Google's Gemini API.
//
// Answers come from a generative model prompted with a text/template and
// asked for a JSON response. Similarity scores are cosine similarities of
// embeddings from an embedding model: texts are compared directly, lists by
// averaging each element's best match in the other list in both directions.
//
// API failures are classified for the evaluation gateway: rate limits,
// timeouts and 5xx responses are transient; everything else is permanent.
package gemini
