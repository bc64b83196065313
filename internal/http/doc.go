// Package httpapp provides the HTTP API for hnews.
//
//	@title						hnews API
//	@version					1.0
//	@description				A small Hacker News style API: log in for an API key, then upvote and comment.
//	@description
//	@description				## Authentication
//	@description
//	@description				Exchange a username and password for an API key, then pass it as the
//	@description				`apikey` parameter on every write.
//	@description				```bash
//	@description				curl -X POST /v1/login -d 'username=alice&password=secret'
//	@description				# Returns: {"apikey": "KEY"}
//	@description				curl -X POST /v1/login/entry/upvote -d 'apikey=KEY&id=42'
//	@description				curl -X POST /v1/login/logout -d 'apikey=KEY'
//	@description				```
//	@description
//	@description				Parameters may be sent in the query string, as a form body, or as a flat JSON object.
//
//	@contact.name				hnews
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	APIKey
//	@in							query
//	@name						apikey
//	@description				API key from /v1/login
//
//	@tag.name					Session
//	@tag.description			Log in and out. Each login issues a fresh API key.
//
//	@tag.name					Entries
//	@tag.description			Browse submitted entries.
//
//	@tag.name					Comments
//	@tag.description			Threaded discussion on entries.
//
//	@tag.name					Votes
//	@tag.description			Upvote entries and comments. One vote per user per target.
package httpapp
