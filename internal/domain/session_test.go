package domain

import (
	"testing"
	"time"
)

func TestDeriveRoundIDDeterministic(t *testing.T) {
	a := DeriveRoundID("token-a", 0)
	b := DeriveRoundID("token-a", 0)
	if a != b {
		t.Errorf("Expected identical IDs for same inputs, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Expected 16-char round ID, got %d chars", len(a))
	}
}

func TestDeriveRoundIDUniquePerIndex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := DeriveRoundID("token-a", i)
		if seen[id] {
			t.Fatalf("Duplicate round ID %q at index %d", id, i)
		}
		seen[id] = true
	}
}

func TestDeriveRoundIDVariesByToken(t *testing.T) {
	if DeriveRoundID("token-a", 0) == DeriveRoundID("token-b", 0) {
		t.Error("Expected different IDs for different tokens")
	}
}

func TestFindRound(t *testing.T) {
	s := &Session{
		Rounds: []Round{
			{RoundID: "r0"},
			{RoundID: "r1"},
		},
	}
	if got := s.FindRound("r1"); got == nil || got.RoundID != "r1" {
		t.Errorf("Expected round r1, got %+v", got)
	}
	if got := s.FindRound("missing"); got != nil {
		t.Errorf("Expected nil for unknown round, got %+v", got)
	}
}

func TestResolvedAnswersOrdered(t *testing.T) {
	s := &Session{
		Rounds: []Round{
			{RoundID: "r0", Result: &Result{Answer: "first", AnsweredAt: time.Now()}},
			{RoundID: "r1"},
			{RoundID: "r2", Result: &Result{Answer: "second", AnsweredAt: time.Now()}},
		},
	}
	answers := s.ResolvedAnswers()
	if len(answers) != 2 || answers[0] != "first" || answers[1] != "second" {
		t.Errorf("Expected [first second], got %v", answers)
	}
}

func TestPassingRounds(t *testing.T) {
	s := &Session{
		Rounds: []Round{
			{Result: &Result{HumanScore: 4}},
			{Result: &Result{HumanScore: 2}},
			{Result: &Result{HumanScore: 3}},
			{},
		},
	}
	if got := s.PassingRounds(3); got != 2 {
		t.Errorf("Expected 2 passing rounds, got %d", got)
	}
}

func TestSanitizedChallengeStripsHiddenFields(t *testing.T) {
	ch := Challenge{
		Variant:      VariantMetaLoop,
		Text:         "prompt",
		ValidatorKey: VariantMetaLoop,
		Context:      &ChallengeContext{RefHash: "abcd", PrevAnswers: []string{"x"}},
	}
	got := ch.Sanitized()
	if got.Context != nil {
		t.Error("Expected context stripped from sanitized challenge")
	}
	if got.ValidatorKey != "" {
		t.Error("Expected validator key stripped from sanitized challenge")
	}
	if ch.Context == nil {
		t.Error("Sanitizing must not mutate the original challenge")
	}
}
