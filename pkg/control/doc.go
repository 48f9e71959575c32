// Package control exposes the queue's administrative commands over HTTP.
// It is a thin adapter: each route maps onto one command from the closed
// command set and returns the structured control response as JSON.
package control
