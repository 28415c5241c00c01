package wms

import "strings"

// capsXML is a GeoServer-like 1.1.1 document; {{BASE}} is replaced with the test server URL.
const capsXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE WMT_MS_Capabilities SYSTEM "http://schemas.opengis.net/wms/1.1.1/WMS_MS_Capabilities.dtd">
<WMT_MS_Capabilities version="1.1.1" updateSequence="42">
  <Service>
    <Name>OGC:WMS</Name>
    <Title>Field Survey</Title>
    <Abstract>Survey layers</Abstract>
    <KeywordList><Keyword>WMS</Keyword><Keyword>survey</Keyword></KeywordList>
    <OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}"/>
    <ContactInformation>
      <ContactPersonPrimary>
        <ContactPerson>Ana Field</ContactPerson>
        <ContactOrganization>Survey Office</ContactOrganization>
      </ContactPersonPrimary>
      <ContactElectronicMailAddress>maps@example.org</ContactElectronicMailAddress>
    </ContactInformation>
  </Service>
  <Capability>
    <Request>
      <GetCapabilities>
        <Format>application/vnd.ogc.wms_xml</Format>
        <DCPType><HTTP><Get><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}?SERVICE=WMS&amp;"/></Get></HTTP></DCPType>
      </GetCapabilities>
      <GetMap>
        <Format>image/png</Format>
        <Format>image/jpeg</Format>
        <Format>application/x-geotiff</Format>
        <DCPType><HTTP><Get><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}?SERVICE=WMS&amp;"/></Get></HTTP></DCPType>
      </GetMap>
      <GetFeatureInfo>
        <Format>text/html</Format>
        <DCPType><HTTP><Get><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}?SERVICE=WMS&amp;"/></Get></HTTP></DCPType>
      </GetFeatureInfo>
    </Request>
    <Exception><Format>application/vnd.ogc.se_xml</Format><Format>application/vnd.ogc.se_inimage</Format></Exception>
    <Layer>
      <Title>Root</Title>
      <SRS>EPSG:4326 EPSG:3857</SRS>
      <LatLonBoundingBox minx="-180" miny="-90" maxx="180" maxy="90"/>
      <Style><Name>default</Name><Title>Default</Title>
        <LegendURL width="20" height="24"><Format>image/png</Format><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}/legend/default.png"/></LegendURL>
      </Style>
      <Layer queryable="1">
        <Name>survey:wells</Name>
        <Title>Wells</Title>
        <Abstract>Water wells</Abstract>
        <KeywordList><Keyword>water</Keyword></KeywordList>
        <LatLonBoundingBox minx="-70" miny="-20" maxx="-60" maxy="-15"/>
        <BoundingBox SRS="EPSG:4326" minx="-70" miny="-20" maxx="-60" maxy="-15"/>
        <Style><Name>wells</Name><Title>Wells style</Title></Style>
      </Layer>
      <Layer queryable="0" opaque="1" cascaded="2">
        <Name>survey:basemap</Name>
        <Title>Basemap</Title>
        <Dimension name="time" units="ISO8601"/>
        <Dimension name="elevation" units="EPSG:5030"/>
        <Extent name="time" default="2024-06-01">2024-01-01, 2024-06-01</Extent>
        <Extent name="elevation">0,100,200</Extent>
        <MetadataURL type="FGDC"><Format>text/xml</Format><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}/meta/basemap.xml"/></MetadataURL>
        <DataURL><Format>application/zip</Format><OnlineResource xmlns:xlink="http://www.w3.org/1999/xlink" xlink:href="{{BASE}}/data/basemap.zip"/></DataURL>
      </Layer>
      <Layer queryable="1">
        <Name>survey:group</Name>
        <Title>Group</Title>
        <SRS>EPSG:32719</SRS>
        <Layer queryable="1">
          <Name>survey:roads</Name>
          <Title>Roads</Title>
          <Style><Name>default</Name><Title>Roads default</Title></Style>
        </Layer>
        <Layer queryable="1">
          <Name>survey:wells</Name>
          <Title>Wells (nested)</Title>
        </Layer>
      </Layer>
    </Layer>
  </Capability>
</WMT_MS_Capabilities>`

const exceptionXML = `<?xml version="1.0" encoding="UTF-8"?>
<ServiceExceptionReport version="1.1.1">
  <ServiceException code="InvalidUpdateSequence">
    Capabilities are being rebuilt
  </ServiceException>
</ServiceExceptionReport>`

func capsDoc(base string) []byte {
	return []byte(strings.ReplaceAll(capsXML, "{{BASE}}", base))
}
