package main

import (
	"reflect"
	"testing"
)

func TestParseBitrates(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "6,2", want: []int{6, 2}},
		{in: " 8 , 4,1 ", want: []int{8, 4, 1}},
		{in: "6,,2", want: []int{6, 2}},
		{in: "", want: nil},
		{in: "six", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseBitrates(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseBitrates(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseBitrates(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
