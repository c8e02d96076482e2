package subwire_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/ambiyansyah-risyal/subwire"
)

func ExampleClient_Ping() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subsonic-response":{"status":"ok","version":"1.16.0"}}`)
	}))
	defer server.Close()

	client := subwire.New(
		subwire.WithServerURL(server.URL),
		subwire.WithCredentials("alice", "sesame"),
		subwire.WithInitialVersion(subwire.V1_12_0),
		subwire.WithVersionListener(func(v subwire.ProtocolVersion) {
			fmt.Println("upgraded to", v)
		}),
	)

	if err := client.Ping(context.Background()); err != nil {
		fmt.Println("ping failed:", err)
		return
	}
	v := client.ProtocolVersion()
	fmt.Println("auth:", subwire.SelectAuthScheme(v, subwire.AuthSchemeAuto))
	// Output:
	// upgraded to 1.16.0
	// auth: digest
}

func ExampleWithNetworkState() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"subsonic-response":{"status":"ok","version":"1.16.0","genres":{}}}`)
	}))
	defer server.Close()

	online := true
	client := subwire.New(
		subwire.WithServerURL(server.URL),
		subwire.WithCredentials("alice", "sesame"),
		subwire.WithNetworkState(subwire.NetworkStateFunc(func() bool { return online })),
	)

	ctx := context.Background()
	resp, err := client.Get(ctx, "getGenres", nil)
	if err == nil {
		err = subwire.DecodeResponse(resp, nil)
	}
	fmt.Println("online:", err)

	online = false
	resp, err = client.Get(ctx, "getGenres", nil)
	if err == nil {
		fmt.Println("offline:", resp.Header.Get("X-Cache-Status"))
		resp.Body.Close()
	}

	_, err = client.Get(ctx, "getAlbum", url.Values{"id": {"1"}})
	fmt.Println("never fetched:", errors.Is(err, subwire.ErrUnsatisfiableFromCache))
	// Output:
	// online: <nil>
	// offline: offline
	// never fetched: true
}

func ExampleNormalizeRange() {
	h := http.Header{}
	h.Set("Range", "51233")
	offset, _ := subwire.NormalizeRange(h)
	fmt.Println(h.Get("Range"), offset)
	fmt.Println(subwire.ReadTimeoutForOffset(offset, subwire.BaseReadTimeout, subwire.PerOffsetByteTimeout))
	// Output:
	// bytes=51233- 51233
	// 10.000256165s
}
