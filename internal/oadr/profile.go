// Package oadr implements the OpenADR 2.0 protocol model: profile namespace
// maps, typed accessors over event payloads, and the outbound payload
// builders (request, acknowledgement, error).
package oadr

// Profile selects the OpenADR 2.0 wire profile. The profile only changes the
// namespace/field-mapping table the accessors use, never the reconciliation
// algorithm.
type Profile string

const (
	Profile20A Profile = "2.0a"
	Profile20B Profile = "2.0b"
)

// 2.0a namespaces.
const (
	oadrXMLNSA = "http://openadr.org/oadr-2.0a/2012/07"
	pyldXMLNS  = "http://docs.oasis-open.org/ns/energyinterop/201110/payloads"
	eiXMLNS    = "http://docs.oasis-open.org/ns/energyinterop/201110"
	emixXMLNS  = "http://docs.oasis-open.org/ns/emix/2011/06"
	xcalXMLNS  = "urn:ietf:params:xml:ns:icalendar-2.0"
	strmXMLNS  = "urn:ietf:params:xml:ns:icalendar-2.0:stream"
)

// 2.0b namespaces. Shared prefixes keep their 2.0a URIs.
const (
	oadrXMLNSB   = "http://openadr.org/oadr-2.0b/2012/07"
	dsig11XMLNS  = "http://www.w3.org/2009/xmldsig11#"
	dsXMLNS      = "http://www.w3.org/2000/09/xmldsig#"
	clmXMLNS     = "urn:un:unece:uncefact:codelist:standard:5:ISO42173A:2010-04-07"
	scaleXMLNS   = "http://docs.oasis-open.org/ns/emix/2011/06/siscale"
	powerXMLNS   = "http://docs.oasis-open.org/ns/emix/2011/06/power"
	gbXMLNS      = "http://naesb.org/espi"
	atomXMLNS    = "http://www.w3.org/2005/Atom"
	cctsXMLNS    = "urn:un:unece:uncefact:documentation:standard:CoreComponentsTechnicalSpecification:2"
	gmlXMLNS     = "http://www.opengis.net/gml/3.2"
	gmlsfXMLNS   = "http://www.opengis.net/gmlsf/2.0"
	xsiXMLNS     = "http://www.w3.org/2001/XMLSchema-instance"
)

var nsMapA = map[string]string{
	"oadr": oadrXMLNSA,
	"pyld": pyldXMLNS,
	"ei":   eiXMLNS,
	"emix": emixXMLNS,
	"xcal": xcalXMLNS,
	"strm": strmXMLNS,
}

var nsMapB = map[string]string{
	"oadr":   oadrXMLNSB,
	"pyld":   pyldXMLNS,
	"ei":     eiXMLNS,
	"emix":   emixXMLNS,
	"xcal":   xcalXMLNS,
	"strm":   strmXMLNS,
	"dsig11": dsig11XMLNS,
	"ds":     dsXMLNS,
	"clm":    clmXMLNS,
	"scale":  scaleXMLNS,
	"power":  powerXMLNS,
	"gb":     gbXMLNS,
	"atom":   atomXMLNS,
	"ccts":   cctsXMLNS,
	"gml":    gmlXMLNS,
	"gmlsf":  gmlsfXMLNS,
	"xsi":    xsiXMLNS,
}

// Normalize returns a valid profile, defaulting unknown values to 2.0a.
func (p Profile) Normalize() Profile {
	if p == Profile20B {
		return Profile20B
	}
	return Profile20A
}

// NSMap returns the prefix-to-namespace table for the profile.
func (p Profile) NSMap() map[string]string {
	if p.Normalize() == Profile20B {
		return nsMapB
	}
	return nsMapA
}
