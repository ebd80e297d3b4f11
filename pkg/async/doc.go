// Package async provides panic-safe goroutine helpers and a bounded worker
// pool used to fan inbound updates out of the intake loop.
package async
