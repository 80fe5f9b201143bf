package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAndPrint_SucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"health":[]}`))
	}))
	defer srv.Close()

	require.NoError(t, fetchAndPrint(srv.URL, "/status"))
}

func TestFetchAndPrint_SurfacesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
	}))
	defer srv.Close()

	err := fetchAndPrint(srv.URL, "/status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "missing bearer token")
}

func TestPostAndPrint_SendsJSONBody(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"reset":"openai:gpt-4"}`))
	}))
	defer srv.Close()

	require.NoError(t, postAndPrint(srv.URL, "/admin/cooldowns/reset", []byte(`{"key":"openai:gpt-4"}`)))
	assert.JSONEq(t, `{"key":"openai:gpt-4"}`, gotBody)
}

func TestFetchAndPrint_ConnectionRefused(t *testing.T) {
	err := fetchAndPrint("http://127.0.0.1:1", "/status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/status")
}
