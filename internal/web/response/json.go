package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v as a JSON body with the given status
func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes v with 200
func OK(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, v)
}

// Created writes v with 201
func Created(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusCreated, v)
}
