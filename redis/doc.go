// Package redis provides the Redis-backed state store.
//
// Store implements statestore.Store on a go-redis client: values are JSON
// encoded, Keys walks the keyspace with a SCAN MATCH iterator and MultiGet
// issues a single MGET. Component owns the connection pool built from
// Config and exposes the Store once started.
//
//	comp := redis.NewComponent(cfg, log)
//	if err := registry.Register(comp); err != nil { ... }
//	// after StartAll:
//	store := comp.Store()
//
// JSON decoding turns every number into float64, so reducers running against
// this store must not depend on integer types surviving the round trip.
package redis
