// Package dag builds the execution graph from a config model: step,
// resource and race nodes, their explicit and implicit dependency links,
// and the per-node futures the executor settles as nodes finish.
package dag
