// Package config loads the YAML configuration of a virtual directory.
//
// # Loading
//
//	cfg, err := config.LoadConfig("/etc/vdir/vdir.yaml")
//
// LoadConfig reads an optional .env file next to the configuration file,
// substitutes environment variables, decodes the YAML and applies the
// defaults declared in struct tags. ValidateConfig reports every problem
// it finds rather than stopping at the first one.
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default} are replaced before parsing. Only upper-case
// names are substituted, so that ${u.name} references of field templates
// are left alone.
//
// # Example Configuration
//
//	logging:
//	  level: info
//	  format: json
//
//	name: example
//	connections:
//	  - name: db
//	    adapter: jdbc
//	    parameters:
//	      url: ${DATABASE_URL}
//	  - name: mem
//	    adapter: embedded
//
//	sources:
//	  - name: people
//	    connection: db
//	    fields:
//	      - {name: id, primaryKey: true}
//	      - {name: name}
//	  - name: accounts
//	    connection: mem
//	    fields:
//	      - {name: uid, primaryKey: true}
//	      - {name: cn}
//
//	entries:
//	  - dn: dc=example,dc=com
//	    objectClasses: [domain]
//	    children:
//	      - dn: uid=...,dc=example,dc=com
//	        objectClasses: [account]
//	        sources: [{alias: a, source: accounts}]
//	        attributes:
//	          - {name: uid, rdn: true, variable: a.uid}
//	          - {name: cn, variable: a.cn}
//
//	jobs:
//	  - name: accounts
//	    interval: 15m
//	    sources: [{alias: p, source: people}]
//	    targets:
//	      - source: accounts
//	        fields:
//	          - {name: uid, variable: p.id}
//	          - {name: cn, expression: "${p.name}"}
package config
