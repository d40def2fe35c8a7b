/*
Package authsdk is the client side of the idsrv token service.

SDKClient covers the unauthenticated operations: discovery, the token
endpoint grants, introspection, revocation and health. A successful
grant yields a Session, which carries the tokens, refreshes them when a
refresh token is available, and calls protected endpoints:

	client := authsdk.NewSDKClient("http://localhost:8080")

	doc, err := client.Discover(ctx)

	session, err := client.AuthenticateWithPassword(ctx, authsdk.PasswordCredentials{
		ClientID:     "ro.client",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "Pass123$",
		Scopes:       []string{"api1"},
	})

	claims, err := session.Identity(ctx)

Error responses are returned as *OAuth2Error. The server uses the same
type to write them, so both sides agree on codes and status codes.
*/
package authsdk
