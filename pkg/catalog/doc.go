// Package catalog describes the datasets and products the service can query
// and brokers access to the query engine that computes over them.
//
// Catalog entries are YAML files under CATALOG_PATH, one file per dataset.
// Each product carries a role gating access and a maximum query size used by
// the gateway's size gate. The engine itself is an external collaborator: the
// service only needs Estimate (read-only, cheap) and Execute (long compute
// producing an on-disk artifact). Estimates go through a TTL'd LRU of open
// product handles; a filesystem watcher reloads the catalog when its files
// change.
package catalog
