// Package config loads the relay configuration from a YAML file.
//
// Sections and their defaults:
//
//	server: address 127.0.0.1, port 8080, cors false, ui_dir "", shutdown_timeout 10s
//	ws:     path /ws, read_limit 1MiB, write_timeout 10s, pong_wait 60s,
//	        ping_period 54s, max_room_len 256, handshake_timeout 10s, allowed_origins []
//	relay:  queue_size 256
//	auth:   mode none (apikey|none), key_env, header x-api-key
//	grpc:   enabled false, port 50051
//	bus:    mode none (redis|none), redis_addr localhost:6379, redis_db 0,
//	        channel_prefix "relay:room:"
//	log:    level info, format json
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on change; only relay.queue_size and
// log.level take effect without a restart.
package config
