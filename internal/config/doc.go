// Package config handles configuration loading for coven-responder.
//
// # Configuration File
//
// The format follows the file extension. TOML:
//
//	[matrix]
//	homeserver = "https://matrix.example.org"
//	username = "responder"
//	password = "${RESPONDER_PASSWORD}"
//	recovery_key = "${RESPONDER_RECOVERY_KEY}"
//
//	[database]
//	path = "~/.local/share/coven-responder/responder.db"
//
//	[bridge]
//	allowed_rooms = ["!abc:example.org"]
//	command_prefix = "!responder"
//	typing_indicator = false
//	dedupe_ttl = "10m"
//
//	[logging]
//	level = "info"
//
// The same keys work in a .yaml or .yml file.
//
// # Environment Variables
//
// ${VAR_NAME} references anywhere in the file are replaced before decoding;
// unset variables become empty strings. After decoding, these variables
// override the file:
//
//	RESPONDER_MATRIX_HOMESERVER    matrix.homeserver
//	RESPONDER_MATRIX_USERNAME      matrix.username
//	RESPONDER_MATRIX_PASSWORD      matrix.password
//	RESPONDER_MATRIX_RECOVERY_KEY  matrix.recovery_key
//	RESPONDER_DB_PATH              database.path
//	RESPONDER_CRYPTO_DB_PATH       database.crypto_path
//	RESPONDER_ALLOWED_ROOMS        bridge.allowed_rooms (comma separated)
//	RESPONDER_COMMAND_PREFIX       bridge.command_prefix
//	RESPONDER_TYPING_INDICATOR     bridge.typing_indicator
//	RESPONDER_DEDUPE_TTL           bridge.dedupe_ttl
//	RESPONDER_DEDUPE_SIZE          bridge.dedupe_size
//	RESPONDER_LOG_LEVEL            logging.level
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("90s", "10m", "1h").
package config
