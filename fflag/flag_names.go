package fflag

/*
Enabling SemanticDedup turns on the embedding-based deduplication passes
(memory clusters and topic merges). Keyword dedup always runs; the semantic
passes cost embedding calls and a larger LLM budget, so they roll out behind
this flag.
*/
const SemanticDedup = "semantic-dedup"

// Brainlets gates the post-turn helper runs as a group.
const Brainlets = "brainlets"
