package apperror

import (
	"context"
	"errors"
	"strings"
)

// Display categories shown to the user
const (
	DisplaySafety  = "safety"
	DisplayNetwork = "network"
	DisplayQuota   = "quota"
	DisplayImage   = "image"
	DisplayGeneric = "generic"
)

// ErrorDetails - user-facing explanation of a failure
type ErrorDetails struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

var (
	safetyKeywords  = []string{"safety", "blocked", "harmful", "sexually", "prohibited"}
	networkKeywords = []string{"fetch", "network", "connection", "offline", "timeout", "deadline exceeded"}
	quotaKeywords   = []string{"429", "quota", "resource exhausted", "rate limit"}
	imageKeywords   = []string{"image", "format", "base64"}
)

// Describe - map any error to one of the display categories
func Describe(err error) ErrorDetails {
	if err == nil {
		return generic("")
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case TypeDecode, TypeEncode, TypeIO:
			return imageDetails()
		case TypeInvalidInput:
			if appErr.Image {
				return imageDetails()
			}
			return generic(appErr.Message)
		}
	}

	msg := strings.ToLower(err.Error())

	// safety rejections are permanent remote errors, so check text before classes
	if containsAny(msg, safetyKeywords) {
		return safetyDetails()
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch remoteErr.Class {
		case RateLimited:
			return quotaDetails()
		case Transient:
			return networkDetails()
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return networkDetails()
	}

	switch {
	case containsAny(msg, networkKeywords):
		return networkDetails()
	case containsAny(msg, quotaKeywords):
		return quotaDetails()
	case containsAny(msg, imageKeywords):
		return imageDetails()
	}

	return generic(err.Error())
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func safetyDetails() ErrorDetails {
	return ErrorDetails{
		Type:    DisplaySafety,
		Title:   "Content rejected",
		Message: "The model flagged this image as sensitive, violent or otherwise against its safety policy.",
		Suggestions: []string{
			"Try a different image.",
			"Crop out sensitive or violent areas before uploading.",
			"This is an automatic safety filter, not a system fault.",
		},
	}
}

func networkDetails() ErrorDetails {
	return ErrorDetails{
		Type:    DisplayNetwork,
		Title:   "Connection problem",
		Message: "The AI service could not be reached. Check your connection and try again.",
		Suggestions: []string{
			"Check your Wi-Fi or mobile data connection.",
			"Disable VPN or ad blockers if enabled.",
			"Reload the page and retry.",
		},
	}
}

func quotaDetails() ErrorDetails {
	return ErrorDetails{
		Type:    DisplayQuota,
		Title:   "Too many requests",
		Message: "The API key is rate limited for the moment.",
		Suggestions: []string{
			"Wait one or two minutes and try again.",
			"The free tier limits how often the model can be called.",
		},
	}
}

func imageDetails() ErrorDetails {
	return ErrorDetails{
		Type:    DisplayImage,
		Title:   "Image could not be processed",
		Message: "The uploaded file could not be read or converted.",
		Suggestions: []string{
			"Use a JPG, PNG or WebP image.",
			"Compress the image or use one smaller than 10MB.",
			"Pick another image.",
		},
	}
}

func generic(message string) ErrorDetails {
	if message == "" {
		message = "Something went wrong while processing this request."
	}
	return ErrorDetails{
		Type:    DisplayGeneric,
		Title:   "Unexpected error",
		Message: message,
		Suggestions: []string{
			"Reload the page.",
			"Try again in a few minutes.",
			"If it keeps happening the service may be under maintenance.",
		},
	}
}
