// Package gps reads NMEA 0183 sentences from a serial GNSS receiver and keeps
// the latest position sample for the telemetry publisher and the HTTP API.
//
// RMC sentences carry position, speed, and validity. GGA sentences carry
// satellite count and fix quality. Everything else is ignored.
package gps
