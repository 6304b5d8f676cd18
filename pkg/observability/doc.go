/*
Package observability provides Prometheus instrumentation for the Concierge
server: HTTP request counts and latency, dispatched-action counters, and a
resident-session gauge.
*/
package observability
