// Recordsync - Upstream Record Store Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recordsync

// Package config loads recordsync configuration.
//
// Values are layered with koanf: struct defaults, then an optional YAML file
// (CONFIG_PATH, ./config.yaml, /etc/recordsync/config.yaml), then mapped
// environment variables. The result is validated once and passed explicitly
// to every component; there is no package-level configuration state.
//
// Collections are declared only in the YAML file:
//
//	upstream:
//	  application_id: 5f1c...
//	  api_key: 9a2e...
//	collections:
//	  - name: permits
//	    object: object_12
//	    fields:
//	      field_1: county
//	      field_2: status
//	    required_fields: [field_1]
//	    canonicalize:
//	      - field: field_1
//	        values:
//	          - canonical: Wake
//	          - canonical: Durham
//	            aliases: [durham co]
//
// Credentials are usually supplied through UPSTREAM_APPLICATION_ID and
// UPSTREAM_API_KEY rather than the file.
package config
