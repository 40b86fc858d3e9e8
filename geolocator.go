package main

import "net"

// DefaultGeolocator is a minimal, dependency-free Geolocator: it recognizes
// loopback and private address ranges and otherwise reports "XX" (unknown).
// A real GeoIP database lookup is out of scope per spec §1 — this exists so
// the login snapshot's UserPresence packet always has a well-formed country
// field to write, not as a faithful geolocation service.
type DefaultGeolocator struct{}

func NewDefaultGeolocator() *DefaultGeolocator { return &DefaultGeolocator{} }

func (DefaultGeolocator) Locate(ip string) string {
	addr := net.ParseIP(ip)
	if addr == nil {
		return "XX"
	}
	if addr.IsLoopback() || addr.IsPrivate() {
		return "LO"
	}
	return "XX"
}
