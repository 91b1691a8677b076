// Package config loads the YAML configuration of a dedicated server.
//
//	listen_port: 7440
//	server:
//	  id: 0b6d7c1e-5d1a-4c39-9a53-3f1f0f5f8f0a
//	  name: Friday night
//	  game_mode: 2
//	  max_players: 16
//	  level: harbor
//	  max_peers: 128
//	discovery:
//	  enabled: true
//	  group: ff02::4a32
//	  port: 7439
//	logging:
//	  level: info
//	  format: text
//
// Load overlays the file on Default and writes the defaults out when the
// file does not exist yet. Validate reports errors and warnings per field.
package config
