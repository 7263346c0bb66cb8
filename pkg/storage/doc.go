// Package storage loads governance policy rules and serves immutable rule snapshots
// to the decision pipeline.
//
// Rules come from a YAML document of the form:
//
//	rules:
//	  - id: PROD_DEPLOY
//	    description: Deployments that touch production
//	    keywords: [production]
//	    decision: ESCALATE
//	    risk_level: critical
//
// A document is validated as a whole. Any invalid record rejects the load, so a
// snapshot is either the complete document or nothing at all.
package storage
