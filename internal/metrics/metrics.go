package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubAttachedConnections tracks the number of viewer connections in the live set
	HubAttachedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_hub_attached_connections",
			Help: "Number of viewer connections currently attached to the hub",
		},
	)

	// HubIdentifiedViewers tracks attached connections that have sent a client message
	HubIdentifiedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_hub_identified_viewers",
			Help: "Number of attached connections with a known participant id",
		},
	)

	// HubMessagesRelayed tracks messages fanned out by kind
	HubMessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_hub_messages_relayed_total",
			Help: "Total messages fanned out to viewers by message type",
		},
		[]string{"kind"},
	)

	// HubDecodeFailures tracks inbound payloads dropped by the codec
	HubDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_decode_failures_total",
			Help: "Total inbound viewer payloads dropped because they could not be decoded",
		},
	)

	// HubSendFailures tracks per-connection send failures during fan-out
	HubSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_hub_send_failures_total",
			Help: "Total per-connection send failures during fan-out by reason",
		},
		[]string{"reason"},
	)

	// HubRemovalsBroadcast tracks remove messages emitted on detach
	HubRemovalsBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_removals_broadcast_total",
			Help: "Total remove messages broadcast after a viewer detached",
		},
	)

	// HubCommandChannelDepth tracks current command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)

	// HubPanicsTotal tracks hub panic recoveries
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_panics_total",
			Help: "Total hub panic recoveries",
		},
	)

	// HubStopTimeoutsTotal tracks hub stops that exceeded timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hub_stop_timeouts_total",
			Help: "Hub stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsTotal tracks accepted websocket connections
	WebSocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total websocket connections accepted",
		},
	)

	// WebSocketConnectionsRejected tracks connections refused before upgrade
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total websocket connections rejected by reason",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks time spent writing one message
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one message to a websocket connection",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// WebSocketConnectionDuration tracks how long viewers stay connected
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Duration of websocket connections",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total websocket ping write failures",
		},
	)

	// WebSocketUniqueIPs tracks distinct client addresses with open connections
	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique client IPs with open websocket connections",
		},
	)
)

// Telemetry Metrics
var (
	// TelemetryTicksTotal tracks device position publications by fix state
	TelemetryTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_ticks_total",
			Help: "Total device position publications by fix state (valid/no_fix)",
		},
		[]string{"fix"},
	)

	// TelemetryPublishFailures tracks ticks that could not reach the hub
	TelemetryPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_publish_failures_total",
			Help: "Total device position publications that failed",
		},
	)
)

// GPS Metrics
var (
	// GPSSentencesTotal tracks NMEA sentences by result
	GPSSentencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gps_nmea_sentences_total",
			Help: "Total NMEA sentences read by result (applied/ignored/invalid)",
		},
		[]string{"result"},
	)

	// GPSFixValid is 1 while the device has a valid fix
	GPSFixValid = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gps_fix_valid",
			Help: "Whether the device currently has a valid fix (1) or not (0)",
		},
	)

	// GPSSatellites tracks satellites used in the last fix
	GPSSatellites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gps_satellites",
			Help: "Satellites used in the last fix",
		},
	)

	// GPSReaderRestarts tracks serial reader restarts after errors
	GPSReaderRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gps_reader_restarts_total",
			Help: "Total GPS reader restarts after open or read errors",
		},
	)
)

// Build Info
var (
	// BuildInfo exposes build information as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
