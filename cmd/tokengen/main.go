// Command tokengen mints bearer access tokens for local development and
// manual testing against a running server.
//
//	go run ./cmd/tokengen -sub alice -role CUSTOMER
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-booking-core/internal/middleware"
	"github.com/iliyamo/ticket-booking-core/internal/utils"
)

func main() {
	_ = godotenv.Load()
	sub := flag.String("sub", "", "token subject (holder or staff id)")
	role := flag.String("role", middleware.RoleCustomer, "CUSTOMER or STAFF")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret, defaults to JWT_SECRET")
	flag.Parse()

	if *sub == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *role != middleware.RoleCustomer && *role != middleware.RoleStaff {
		logrus.Fatalf("unknown role %q", *role)
	}
	tok, err := utils.NewAccessToken(*secret, *sub, *role, *ttl)
	if err != nil {
		logrus.WithError(err).Fatal("signing token")
	}
	fmt.Println(tok.Token)
}
