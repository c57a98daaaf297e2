package upstream

import "encoding/xml"

// The structs below are the minimal wire shapes this client round-trips
// through the transport's SOAP envelope. They cover only the fields this
// implementation reads or writes; MS-WSUSSS's generated WSDL types carry a
// great deal more that this client never touches.

type wireAuthPlugin struct {
	ID         string `xml:"Id"`
	ServiceURL string `xml:"ServiceUrl"`
}

type getAuthConfigResponse struct {
	XMLName xml.Name         `xml:"GetAuthConfigResponse"`
	Plugins []wireAuthPlugin `xml:"GetAuthConfigResult>AuthPlugInConfig"`
}

type getAuthConfigRequest struct {
	XMLName xml.Name `xml:"GetAuthConfig"`
}

type dssGetAuthorizationCookieRequest struct {
	XMLName     xml.Name `xml:"GetAuthorizationCookie"`
	AccountName string   `xml:"accountName"`
	AccountGUID string   `xml:"accountGuid"`
}

type dssGetAuthorizationCookieResponse struct {
	XMLName xml.Name `xml:"GetAuthorizationCookieResponse"`
	Cookie  string   `xml:"GetAuthorizationCookieResult>AuthCookie"`
}

type getCookieRequest struct {
	XMLName    xml.Name `xml:"GetCookie"`
	AuthCookie string   `xml:"authCookie"`
}

type getCookieResponse struct {
	XMLName    xml.Name `xml:"GetCookieResponse"`
	Cookie     string   `xml:"GetCookieResult>CookieData"`
	Expiration string   `xml:"GetCookieResult>Expiration"`
}

type getConfigDataRequest struct {
	XMLName      xml.Name `xml:"GetConfigData"`
	AccessCookie string   `xml:"cookie>CookieData"`
}

type getConfigDataResponse struct {
	XMLName         xml.Name `xml:"GetConfigDataResponse"`
	MaxUpdates      int      `xml:"GetConfigDataResult>MaxNumberOfUpdatesPerRequest"`
	ProtocolVersion string   `xml:"GetConfigDataResult>ProtocolVersion"`
}

type wireFilter struct {
	GetConfig       bool     `xml:"GetConfig"`
	Anchor          string   `xml:"Anchor,omitempty"`
	Products        []string `xml:"Categories>Id,omitempty"`
	Classifications []string `xml:"Classifications>Id,omitempty"`
}

type getRevisionIdListRequest struct {
	XMLName      xml.Name   `xml:"GetRevisionIdList"`
	AccessCookie string     `xml:"cookie>CookieData"`
	Filter       wireFilter `xml:"filter"`
}

type wireRevisionID struct {
	UpdateID string `xml:"UpdateID"`
	Revision int32  `xml:"RevisionNumber"`
}

type getRevisionIdListResponse struct {
	XMLName      xml.Name         `xml:"GetRevisionIdListResponse"`
	Anchor       string           `xml:"GetRevisionIdListResult>Anchor"`
	NewRevisions []wireRevisionID `xml:"GetRevisionIdListResult>NewRevisions>RevisionIdAndTime"`
}

type getUpdateDataRequest struct {
	XMLName      xml.Name         `xml:"GetUpdateData"`
	AccessCookie string           `xml:"cookie>CookieData"`
	RevisionIDs  []wireRevisionID `xml:"updateIds>UpdateIdentity"`
}

type wireUpdateXML struct {
	UpdateID     string `xml:"ID"`
	Revision     int32  `xml:"RevisionNumber"`
	XMLData      []byte `xml:"Xml"`
	IsCompressed bool   `xml:"IsCompressed"`
}

type wireFileURL struct {
	Digest string `xml:"FileDigest"`
	MU     string `xml:"MUUrl"`
	USS    string `xml:"UssUrl"`
}

type getUpdateDataResponse struct {
	XMLName  xml.Name        `xml:"GetUpdateDataResponse"`
	Updates  []wireUpdateXML `xml:"GetUpdateDataResult>Updates>UpdateXml"`
	FileURLs []wireFileURL   `xml:"GetUpdateDataResult>FileUrls>FileUrl"`
}
