// Package encoder turns text into token states for the relation scorer.
//
// An Encoder returns per-token hidden states plus an attention mask, and
// AveragePool reduces them to one vector per text. Three providers exist:
//
//   - native: a trainable token-embedding model stored as an artifact
//     directory (encoder.yaml, vocab.txt, weights.bin) and produced by
//     pkg/trainer
//   - openai: any OpenAI-compatible embeddings endpoint
//   - embedeverything: local Hugging Face models through go-embedeverything
//     (build tag "embedeverything")
//
// Inference is deterministic for every provider. Encoders are safe for
// concurrent use.
package encoder
