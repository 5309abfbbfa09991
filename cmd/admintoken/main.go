// Command admintoken issues a bearer token for the quota management API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dreamproxy/internal/middleware/auth/jwt"
)

var (
	subject = flag.String("sub", "operator", "token subject")
	issuer  = flag.String("iss", "", "token issuer, must match admin.issuer when set")
	ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
	secret  = flag.String("secret", "", "signing secret (defaults to $DREAMPROXY_PROXY_ADMIN_JWTSECRET)")
	addr    = flag.String("addr", "http://localhost:3000", "proxy address used in the example command")
)

func main() {
	flag.Parse()

	key := *secret
	if key == "" {
		key = os.Getenv("DREAMPROXY_PROXY_ADMIN_JWTSECRET")
	}

	provider, err := jwt.NewProvider(jwt.Config{Secret: key, Issuer: *issuer})
	if err != nil {
		log.Fatal("Failed to create token provider: ", err)
	}

	token, err := provider.Issue(*subject, *ttl)
	if err != nil {
		log.Fatal("Failed to sign token: ", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\ncurl -H \"Authorization: Bearer %s\" %s/admin/stats\n", token, *addr)
}
