// Package logx is a thin zerolog facade with hot-reloadable sinks.
//
// Components hold a Logger value; the Service behind it can swap console and
// file sinks at runtime (config reload) without invalidating loggers that
// were handed out earlier.
package logx
