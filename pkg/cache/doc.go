// Package cache provides the memoization layers used by the relation scorer
// and label lookups.
//
// A Memo is a bounded in-process LRU (optionally with a TTL) that can be
// backed by a shared Store:
//   - BadgerStore: an on-disk (or in-memory) badger database, for caches that
//     survive restarts of a single host
//   - RedisStore: a redis server shared by several processes
//
// Store failures never fail a lookup; they are logged and treated as misses.
package cache
