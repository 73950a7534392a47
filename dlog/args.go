/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dlog

// Arg builds a positional LoggableArg from one of the closed Value kinds,
// the call-site convenience the Design Notes' any_loggable_ref replacement
// is meant to support: a call like Log(fabric, SeverityInfo, "retry",
// Arg(Int64Value(n))) stays allocation-light since Value is a plain struct.
func Arg(v Value) LoggableArg { return LoggableArg{Value: v} }

// NamedArg builds a named LoggableArg ([id, name, value] on the wire).
func NamedArg(name string, v Value) LoggableArg {
	return LoggableArg{Name: name, HasName: true, Value: v}
}

func IntArg(v int64) LoggableArg           { return Arg(Int64Value(v)) }
func UintArg(v uint64) LoggableArg         { return Arg(Uint64Value(v)) }
func StringArg(v string) LoggableArg       { return Arg(StringValue(v)) }
func SpanContextArg(v SpanContext) LoggableArg { return Arg(SpanContextValue(v)) }

func NamedIntArg(name string, v int64) LoggableArg     { return NamedArg(name, Int64Value(v)) }
func NamedUintArg(name string, v uint64) LoggableArg   { return NamedArg(name, Uint64Value(v)) }
func NamedStringArg(name string, v string) LoggableArg { return NamedArg(name, StringValue(v)) }
